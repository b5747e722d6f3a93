package service

import (
	"os"
	"testing"

	"mind-tutor-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}
