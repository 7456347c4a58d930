package cfg

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsAndDecodeDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse(nil))

	v := viper.New()
	require.NoError(t, v.BindPFlags(fs))

	c, err := Decode(v)
	require.NoError(t, err)

	assert.Equal(t, "blockfs.img", c.ImagePath)
	assert.Equal(t, uint32(8192), c.ImageSectors)
	assert.False(t, c.Debug.ExitOnInvariantViolation)
	assert.Equal(t, "info", c.Logging.Severity)
	assert.Equal(t, "text", c.Logging.Format)
	assert.Equal(t, "", c.Logging.FilePath)
}

func TestBindFlagsAndDecodeOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse([]string{
		"--image-path=other.img",
		"--image-sectors=2048",
		"--logging.severity=trace",
	}))

	v := viper.New()
	require.NoError(t, v.BindPFlags(fs))

	c, err := Decode(v)
	require.NoError(t, err)

	assert.Equal(t, "other.img", c.ImagePath)
	assert.Equal(t, uint32(2048), c.ImageSectors)
	assert.Equal(t, "trace", c.Logging.Severity)
}
