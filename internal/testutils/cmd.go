package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

// CmdTestCase describes an expected flag of a cobra command.
type CmdTestCase struct {
	Name           string
	Short          string
	Default        string
	PersistentFlag bool
	BaseCmd        *cobra.Command
}

// FlagTestHelper checks that the flag described by testCase is installed on its command.
func FlagTestHelper(t *testing.T, testCase CmdTestCase) {
	t.Helper()

	var flag *pflag.Flag
	if testCase.PersistentFlag {
		flag = testCase.BaseCmd.PersistentFlags().Lookup(testCase.Name)
	} else {
		flag = testCase.BaseCmd.LocalNonPersistentFlags().Lookup(testCase.Name)
	}
	if !assert.NotNil(t, flag, "Flag %q should be installed", testCase.Name) {
		return
	}
	assert.Equal(t, testCase.Short, flag.Shorthand, "Unexpected shorthand for flag %q", testCase.Name)
	assert.Equal(t, testCase.Default, flag.DefValue, "Unexpected default for flag %q", testCase.Name)
}
