package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestSchedulerOptionsDefaults(t *testing.T) {
	opts := schedulerOptions(testViper())
	assert.Equal(t, 3, opts.MaxConcurrentTasks)
	assert.Equal(t, 5*time.Minute, opts.MinExecInterval)
	assert.Equal(t, 5*time.Minute, opts.MaxExecTime)
	assert.Equal(t, 0, opts.MaxOriginsPerRun)
	assert.Equal(t, 24*time.Hour, opts.HangedAfter)
}

func TestSchedulerOptionsUnlimitedExecTime(t *testing.T) {
	v := testViper()
	v.Set("sync.max_exec_time", -1)
	v.Set("sync.max_concurrent_tasks", 0)

	opts := schedulerOptions(v)
	assert.Equal(t, time.Duration(0), opts.MaxExecTime)
	assert.Equal(t, 1, opts.MaxConcurrentTasks)
}

func TestSyncerOptionsFromConfig(t *testing.T) {
	v := testViper()
	v.Set("sync.batch_size", 50)
	v.Set("sync.max_origin_sync_time", "10m")

	opts := syncerOptions(v)
	assert.Equal(t, 50, opts.BatchSize)
	assert.Equal(t, 10*time.Minute, opts.MaxOriginSyncTime)
	assert.Equal(t, 720*time.Hour, opts.InitialWindow)
}

func TestProviderFactoryFromConfig(t *testing.T) {
	v := testViper()
	v.Set("provider.api_url", "http://mock:9000")
	v.Set("provider.timeout", "5s")

	f := providerFactory(v)
	assert.Equal(t, "http://mock:9000", f.API.BaseURL)
	assert.Equal(t, 5*time.Second, f.API.Timeout)
	assert.Equal(t, 60*time.Second, f.IMAP.Timeout)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestOriginFromFlags(t *testing.T) {
	owner := uuid.New()
	shared := uuid.New()
	cmd := &cobra.Command{}
	cmd.Flags().String("mailbox", "", "")
	cmd.Flags().String("account", "", "")
	cmd.Flags().String("provider", models.ProviderAPI, "")
	cmd.Flags().String("token", "", "")
	cmd.Flags().String("token-type", "bearer", "")
	cmd.Flags().String("owner", "", "")
	cmd.Flags().String("organization", "", "")
	cmd.Flags().String("shared-mailbox", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{
		"--mailbox", "alice@example.com",
		"--account", "imap.example.com:993",
		"--provider", "imap",
		"--token", "pw",
		"--owner", owner.String(),
		"--shared-mailbox", shared.String(),
	}))

	o, err := originFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", o.MailboxName)
	assert.Equal(t, models.ProviderIMAP, o.Provider)
	assert.Equal(t, owner, o.OwnerID)
	assert.True(t, o.MailboxScoped())
	assert.Equal(t, shared, o.MailboxID.UUID)
	assert.False(t, o.OrganizationID.Valid)
	assert.Equal(t, "bearer", o.TokenType)
}

func TestOriginFromFlagsRejectsUnknownProvider(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("mailbox", "a@example.com", "")
	cmd.Flags().String("account", "grant", "")
	cmd.Flags().String("provider", "pop3", "")

	_, err := originFromFlags(cmd)
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestSyncForceWithoutIDsFailsBeforeConnecting(t *testing.T) {
	rootCmd.SetArgs([]string{"sync", "--force", "--database.url", "postgres://nowhere.invalid/db"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	assert.ErrorIs(t, err, scheduler.ErrForceWithoutIDs)
}
