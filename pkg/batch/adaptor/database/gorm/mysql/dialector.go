// Package mysql registers the MySQL dialect.
package mysql

import (
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
)

// Type is the config value selecting this dialect.
const Type = "mysql"

func init() {
	gormadaptor.RegisterDialector(Type, Dialector)
}

// DSN builds a go-sql-driver DSN with parseTime enabled.
func DSN(cfg config.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dc := mysqldriver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

// Dialector implements gormadaptor.DialectorFactory.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	return mysql.Open(DSN(cfg)), nil
}
