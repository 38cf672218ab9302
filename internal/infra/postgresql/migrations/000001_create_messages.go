package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/smsmaster/sms-engine/internal/repository"
	"gorm.io/gorm"
)

func createMessagesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_messages",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MessageModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_messages_status_created ON messages (status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_correlation_id ON messages (correlation_id)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_job_id ON messages (job_id) WHERE job_id IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MessageModel{})
		},
	}
}
