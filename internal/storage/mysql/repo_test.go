package mysql

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"co2load/internal/co2"
	"co2load/internal/storage"
)

func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var got Config
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		got = cfg
		return &Repository{cfg: cfg}, nil, nil
	}

	s, err := storage.New(context.Background(), storage.Config{
		Kind: "mysql", Host: "db", Port: "3306", Database: "co2",
		Username: "u", Password: "p", Timeout: 7 * time.Second, Table: co2.Cars(),
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close with nil closeFn: %v", err)
	}

	c, err := mysql.ParseDSN(got.DSN)
	if err != nil {
		t.Fatalf("DSN %q does not parse: %v", got.DSN, err)
	}
	if c.Addr != "db:3306" || c.DBName != "co2" || c.User != "u" || c.Timeout != 7*time.Second || !c.ParseTime {
		t.Fatalf("parsed DSN = %+v", c)
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()
	got := insertSQL("co2_cars", []string{"ID", "M (kg)"}, 2)
	want := "INSERT INTO `co2_cars` (`ID`, `M (kg)`) VALUES (?, ?), (?, ?)"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestRowsPerStatement(t *testing.T) {
	t.Parallel()
	if got := rowsPerStatement(co2.Width); got*co2.Width > maxPlaceholders || (got+1)*co2.Width <= maxPlaceholders {
		t.Fatalf("rowsPerStatement(%d) = %d", co2.Width, got)
	}
	if DefaultBatchRows*co2.Width > maxPlaceholders {
		t.Fatalf("default batch needs more than one statement")
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()
	stmts, err := CreateTableSQL(co2.Cars())
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS `co2_cars`",
		"`Status` VARCHAR(191) NOT NULL",
		"`Date of registration` DATE",
		"PRIMARY KEY (`Status`, `Year`, `Country`, `Ft`, `ID`)",
	} {
		if !strings.Contains(stmts[0], want) {
			t.Errorf("missing %q in\n%s", want, stmts[0])
		}
	}
}

func TestNewRepository_BadDSN(t *testing.T) {
	t.Parallel()
	if _, _, err := NewRepository(context.Background(), Config{DSN: "no-slash", Table: co2.Cars()}); err == nil {
		t.Fatal("expected DSN error")
	}
}
