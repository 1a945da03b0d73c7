package repository

import (
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql duplicate", &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql other", &mysqlDriver.MySQLError{Number: 1452}, false},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres fk", &pgconn.PgError{Code: "23503"}, false},
		{"wrapped mysql", fmt.Errorf("insert trip: %w", &mysqlDriver.MySQLError{Number: 1062}), true},
		{"gorm translated", gorm.ErrDuplicatedKey, true},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestTranslate(t *testing.T) {
	if err := translate(nil, "trip"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := translate(gorm.ErrRecordNotFound, "trip"); !utils.IsKind(err, utils.ErrorKindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := translate(&pgconn.PgError{Code: "23505"}, "invoice"); !utils.IsKind(err, utils.ErrorKindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	boom := errors.New("connection reset")
	if err := translate(boom, "trip"); !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
}
