package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, k := range []string{"CONFIG_FILE", "DATABASE_URL", "JWT_SECRET", "BCRYPT_COST", "LOG_DEV"} {
		t.Setenv(k, "")
	}
}

func TestNewRootCommand(t *testing.T) {
	t.Run("creates root command", func(t *testing.T) {
		cmd := NewRootCommand()
		require.NotNil(t, cmd)
		assert.Equal(t, "marketctl", cmd.Use)
		assert.NotEmpty(t, cmd.Version)
	})

	t.Run("has expected subcommands", func(t *testing.T) {
		cmd := NewRootCommand()
		names := map[string]bool{}
		for _, sub := range cmd.Commands() {
			names[sub.Name()] = true
		}
		for _, want := range []string{"migrate", "create-admin", "reset-password", "check-passwords", "deactivate", "reactivate", "version"} {
			assert.True(t, names[want], "missing command %s", want)
		}
	})

	t.Run("create-admin describes the bootstrap path", func(t *testing.T) {
		cmd, _, err := NewRootCommand().Find([]string{"create-admin"})
		require.NoError(t, err)
		assert.Contains(t, cmd.Long, "email already verified")
		assert.NotContains(t, cmd.Long, "cannot sign up")
	})

	t.Run("migrate describes column upgrades", func(t *testing.T) {
		cmd, _, err := NewRootCommand().Find([]string{"migrate"})
		require.NoError(t, err)
		assert.Contains(t, cmd.Long, "add columns introduced since each table was first created")
	})

	t.Run("has expected flags", func(t *testing.T) {
		cmd := NewRootCommand()
		for _, name := range []string{"config", "url", "verbose"} {
			assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %s", name)
		}
	})
}

func TestRequiredFlags(t *testing.T) {
	tests := map[string][]string{
		"create-admin":   {"create-admin", "--email", "root@example.com"},
		"reset-password": {"reset-password", "--password", "secret99"},
		"deactivate":     {"deactivate"},
		"reactivate":     {"reactivate"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			cmd := NewRootCommand()
			cmd.SetArgs(args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "required flag")
		})
	}
}

func TestURLFlagOverridesConfig(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://from-env/market")

	o := &options{}
	cmd := newRootCommand(o)
	cmd.AddCommand(&cobra.Command{Use: "probe", Run: func(*cobra.Command, []string) {}})

	cmd.SetArgs([]string{"probe"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "postgres://from-env/market", o.cfg.Database.DSN)

	o = &options{}
	cmd = newRootCommand(o)
	cmd.AddCommand(&cobra.Command{Use: "probe", Run: func(*cobra.Command, []string) {}})
	cmd.SetArgs([]string{"probe", "--url", "postgres://from-flag/market"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "postgres://from-flag/market", o.cfg.Database.DSN)
}

func TestVersionSkipsConfig(t *testing.T) {
	isolate(t)
	t.Setenv("BCRYPT_COST", "not-a-number")

	var out bytes.Buffer
	o := &options{}
	cmd := newRootCommand(o)
	cmd.SetArgs([]string{"version"})
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Nil(t, o.cfg)
	assert.Contains(t, out.String(), "marketctl version "+Version)
	assert.Contains(t, out.String(), "Go version:")
}

func TestWritePasswordStates(t *testing.T) {
	var buf bytes.Buffer
	err := writePasswordStates(&buf, []user.PasswordState{
		{Email: "a@example.com", Name: "Ann", UserType: entity.UserTypeBuyer, IsActive: true, Format: "hashed"},
		{Email: "b@example.com", Name: "Bob", UserType: entity.UserTypeFarmer, IsActive: false, Format: "legacy"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "EMAIL"))
	assert.Contains(t, lines[1], "a@example.com")
	assert.Contains(t, lines[1], "hashed")
	assert.Contains(t, lines[2], "legacy")
	assert.Equal(t, "2 accounts, 1 legacy", lines[3])
	assert.NotContains(t, buf.String(), "$2a$")
}
