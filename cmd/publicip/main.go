// Command publicip prints the machine's public IP address.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"co2load/internal/publicip"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "overall lookup timeout")
	url := flag.String("url", publicip.DefaultURL, "ipify-compatible endpoint")
	verbose := flag.Bool("v", false, "log lookup errors")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	r := publicip.NewResolver()
	r.URL = *url
	if !report(ctx, r, os.Stdout, *verbose) {
		os.Exit(1)
	}
}

// report prints the lookup result and reports success.
func report(ctx context.Context, r *publicip.Resolver, w io.Writer, verbose bool) bool {
	ip, err := r.Lookup(ctx)
	if err != nil {
		if verbose {
			log.Printf("publicip: %v", err)
		}
		fmt.Fprintln(w, "Unable to retrieve public IP address")
		return false
	}
	fmt.Fprintf(w, "Public IP address : %s\n", ip)
	return true
}
