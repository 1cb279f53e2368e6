// defaults.go default values for the configuration
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "awsl-pic-pipeline")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.path", "logs")

	viper.SetDefault("database.sqlite.enabled", false)
	viper.SetDefault("database.sqlite.path", "awsl.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "awsl")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.database", "awsl")

	viper.SetDefault("storage.baseurl", "")
	viper.SetDefault("storage.apitoken", "")
	viper.SetDefault("storage.chatid", "")

	viper.SetDefault("migration.grouplimit", 100)
	viper.SetDefault("migration.enabledelete", false)
	viper.SetDefault("migration.uploaddelay", 3*time.Second)
}
