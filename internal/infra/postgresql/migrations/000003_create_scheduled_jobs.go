package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/smsmaster/sms-engine/internal/repository"
	"gorm.io/gorm"
)

func createScheduledJobsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_scheduled_jobs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ScheduledJobModel{}); err != nil {
				return err
			}
			// Due-time scans touch only jobs still scheduled.
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_due ON scheduled_jobs (due_at) WHERE status = 'SCHEDULED'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ScheduledJobModel{})
		},
	}
}
