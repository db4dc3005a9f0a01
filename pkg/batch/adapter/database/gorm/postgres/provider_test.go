package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/citibike/pkg/batch/adapter/database/config"
)

func TestConnectionString(t *testing.T) {
	dsn := ConnectionString(dbconfig.DatabaseConfig{Host: "db", Port: 5432, User: "etl", Password: "pw", Database: "citibike", Schema: "raw"})
	assert.Equal(t, "host=db port=5432 user=etl password=pw dbname=citibike sslmode=disable search_path=raw", dsn)
}
