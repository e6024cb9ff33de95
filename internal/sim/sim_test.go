package sim

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/blunan/Stratos/internal/config"
)

func TestRunReturnsLabelledCollector(t *testing.T) {
	cfg := config.Default()
	cfg.NMobile = 12
	cfg.NRequesters = 3
	cfg.NServices = 4
	cfg.MaxRequestTime = 5 * time.Second

	s := New(cfg, logrus.NewEntry(logrus.New()), 42)
	collector := s.Run(60 * time.Second)

	require.NotNil(t, collector)
	require.NotEmpty(t, collector.RunID)
}

func TestRunWithNoRequestersIsStable(t *testing.T) {
	cfg := config.Default()
	cfg.NMobile = 5
	cfg.NRequesters = 0
	cfg.NServices = 2

	s := New(cfg, logrus.NewEntry(logrus.New()), 7)
	require.NotPanics(t, func() {
		s.Run(10 * time.Second)
	})
}
