package app

import (
	"io"
	"os"

	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/data/binding"
	"github.com/rs/zerolog"

	"yashubustudio/phrasecluster/phrasecluster"
)

const fyneAppID = "studio.yashubu.phrasecluster"

// Run initializes required resources and starts the desktop UI.
func Run() error {
	cfg, err := phrasecluster.LoadConfig("")
	if err != nil {
		return err
	}

	logBinding := binding.NewString()
	capture := newLogCapture(logBinding, 300)
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:     io.MultiWriter(os.Stdout, capture),
		NoColor: true,
	}).With().Timestamp().Logger()

	a := fyneapp.NewWithID(fyneAppID)
	u := buildUI(a, cfg, logger, logBinding)
	u.w.ShowAndRun()
	return nil
}
