package repository

import (
	"errors"

	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	mysqlErrDuplicateEntry = 1062
	pgErrUniqueViolation   = "23505"
)

// IsDuplicateKeyErr recognises unique index violations from both supported drivers.
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateEntry
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// translate maps driver errors onto the service error kinds.
func translate(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.NotFound("%s not found", entity)
	case IsDuplicateKeyErr(err):
		return utils.Conflict("%s already exists", entity)
	default:
		return err
	}
}
