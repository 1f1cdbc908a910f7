package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"yashubustudio/phrasecluster/phrasecluster"
)

type ui struct {
	w fyne.Window

	mu     sync.Mutex
	cancel context.CancelFunc
	result *phrasecluster.Result
}

// buildUI wires the main window: phrase input and options on the left,
// result table on the right, log pane at the bottom.
func buildUI(a fyne.App, cfg phrasecluster.Config, logger zerolog.Logger, logBinding binding.String) *ui {
	u := &ui{w: a.NewWindow("Phrase Cluster")}
	u.w.Resize(fyne.NewSize(1024, 768))

	textInput := widget.NewMultiLineEntry()
	textInput.SetPlaceHolder("Keyword phrases, one per line")
	textInput.Wrapping = fyne.TextWrapWord

	trashInput := widget.NewEntry()
	trashInput.SetPlaceHolder("Trash words (comma separated)")
	trashInput.SetText(strings.Join(cfg.Normalizer.TrashWords, ", "))

	keysInput := widget.NewEntry()
	keysInput.SetPlaceHolder("Pinned keywords (comma separated)")
	keysInput.SetText(strings.Join(cfg.Normalizer.UserKeys, ", "))

	kEntry := widget.NewEntry()
	kEntry.SetText(cfg.Cluster.K.String())

	seedEntry := widget.NewEntry()
	seedEntry.SetPlaceHolder("Random")
	if cfg.Cluster.Seed != nil {
		seedEntry.SetText(strconv.FormatInt(*cfg.Cluster.Seed, 10))
	}

	backendSelect := widget.NewSelect([]string{
		phrasecluster.BackendONNX,
		phrasecluster.BackendTFIDF,
	}, nil)
	backendSelect.SetSelected(cfg.Embedder.Backend)

	minSizeSlider := widget.NewSlider(1, 10)
	minSizeSlider.Step = 1
	minSizeSlider.SetValue(float64(cfg.Cluster.MinClusterSize))
	minSizeLabel := widget.NewLabel(fmt.Sprintf("Min cluster size: %d", cfg.Cluster.MinClusterSize))
	minSizeSlider.OnChanged = func(v float64) {
		minSizeLabel.SetText(fmt.Sprintf("Min cluster size: %d", int(v)))
	}

	statusLabel := widget.NewLabel("Ready")

	var tableData [][]string
	resultTable := widget.NewTable(
		func() (int, int) {
			if len(tableData) == 0 {
				return 0, 0
			}
			return len(tableData), len(tableData[0])
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			if len(tableData) == 0 || id.Row >= len(tableData) || id.Col >= len(tableData[id.Row]) {
				return
			}
			label := obj.(*widget.Label)
			label.SetText(tableData[id.Row][id.Col])
			if id.Row == 0 {
				label.TextStyle = fyne.TextStyle{Bold: true}
			} else {
				label.TextStyle = fyne.TextStyle{}
			}
		},
	)

	updateTable := func(result *phrasecluster.Result) {
		u.mu.Lock()
		u.result = result
		u.mu.Unlock()
		data := buildTableData(result)
		// tableData is read by the table callbacks on the main thread;
		// assign it there too.
		fyne.Do(func() {
			tableData = data
			if len(tableData) > 0 {
				resultTable.SetColumnWidth(0, 220)
				for col := 1; col < len(tableData[0]); col++ {
					resultTable.SetColumnWidth(col, 160)
				}
			}
			resultTable.Refresh()
		})
	}

	composeConfig := func() (phrasecluster.Config, error) {
		local := cfg.Clone()
		local.Normalizer.TrashWords = splitCommaList(trashInput.Text)
		local.Normalizer.UserKeys = splitCommaList(keysInput.Text)
		local.Embedder.Backend = backendSelect.Selected
		local.Cluster.MinClusterSize = int(minSizeSlider.Value)
		k, err := parseKSetting(kEntry.Text)
		if err != nil {
			return local, err
		}
		local.Cluster.K = k
		seed, err := parseSeed(seedEntry.Text)
		if err != nil {
			return local, err
		}
		local.Cluster.Seed = seed
		return local, nil
	}

	var runBtn, cancelBtn *widget.Button
	cancelBtn = widget.NewButton("Cancel", func() {
		u.mu.Lock()
		if u.cancel != nil {
			u.cancel()
		}
		u.mu.Unlock()
	})
	cancelBtn.Disable()

	runBtn = widget.NewButton("Run clustering", func() {
		phrases := parseInputTexts(textInput.Text)
		if len(phrases) == 0 {
			showError(u.w, fmt.Errorf("no phrases to cluster"))
			return
		}
		localCfg, err := composeConfig()
		if err != nil {
			showError(u.w, err)
			return
		}
		if err := phrasecluster.SaveConfig("", localCfg); err != nil {
			logger.Warn().Err(err).Msg("save config")
		}

		ctx, cancel := context.WithCancel(context.Background())
		u.mu.Lock()
		u.cancel = cancel
		u.mu.Unlock()

		runBtn.Disable()
		cancelBtn.Enable()
		statusLabel.SetText("Running...")

		go func() {
			defer fyne.Do(func() {
				runBtn.Enable()
				cancelBtn.Disable()
			})
			embedder, err := phrasecluster.NewEmbedder(localCfg.Embedder)
			if err != nil {
				fyne.Do(func() {
					statusLabel.SetText("Failed")
					showError(u.w, err)
				})
				return
			}
			defer embedder.Close()

			notify := func(p phrasecluster.Progress) {
				text := fmt.Sprintf("%s (%d)", p.State, p.Count)
				fyne.Do(func() {
					statusLabel.SetText(text)
				})
			}
			pipe, err := phrasecluster.NewPipeline(embedder, localCfg, logger, notify)
			if err != nil {
				fyne.Do(func() { showError(u.w, err) })
				return
			}
			result, err := pipe.Run(ctx, phrases)
			if err != nil {
				fyne.Do(func() {
					statusLabel.SetText("Failed")
					showError(u.w, err)
				})
				return
			}
			updateTable(result)
			fyne.Do(func() {
				statusLabel.SetText(fmt.Sprintf("Done: %d rows, %d clusters",
					len(result.Rows), len(result.Clusters)))
			})
		}()
	})

	loadFileBtn := widget.NewButton("Load file", func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil {
				showError(u.w, err)
				return
			}
			if rc == nil {
				return
			}
			defer rc.Close()
			phrases, err := phrasecluster.LoadPhrases(rc.URI().Path())
			if err != nil {
				showError(u.w, err)
				return
			}
			textInput.SetText(strings.Join(phrases, "\n"))
		}, u.w)
		fd.SetFilter(storage.NewExtensionFileFilter([]string{".txt", ".csv", ".tsv"}))
		fd.Show()
	})

	exportBtn := widget.NewButton("Export result", func() {
		u.mu.Lock()
		result := u.result
		u.mu.Unlock()
		if result == nil {
			showError(u.w, fmt.Errorf("no result to export"))
			return
		}
		fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
			if err != nil {
				showError(u.w, err)
				return
			}
			if uc == nil {
				return
			}
			path := uc.URI().Path()
			uc.Close()
			rows, err := phrasecluster.SaveResult(path, result)
			if err != nil {
				showError(u.w, err)
				return
			}
			logger.Info().Str("path", path).Int("rows", rows).Msg("result exported")
		}, u.w)
		fd.SetFileName("clusters.csv")
		fd.SetFilter(storage.NewExtensionFileFilter([]string{".csv", ".tsv", ".txt", ".json"}))
		fd.Show()
	})

	logLabel := widget.NewLabelWithData(logBinding)
	logLabel.Wrapping = fyne.TextWrapWord
	logContainer := container.NewVScroll(logLabel)
	logContainer.SetMinSize(fyne.NewSize(200, 120))

	controls := container.NewVBox(
		container.NewHBox(runBtn, cancelBtn, loadFileBtn, exportBtn, statusLabel),
		container.NewVBox(widget.NewLabel("Phrases"), textInput),
		widget.NewSeparator(),
		container.NewVBox(
			widget.NewLabel("Options"),
			container.NewHBox(widget.NewLabel("Clusters (number or auto)"), kEntry),
			container.NewHBox(widget.NewLabel("Seed"), seedEntry),
			container.NewHBox(widget.NewLabel("Backend"), backendSelect),
			container.NewHBox(minSizeLabel, minSizeSlider),
			trashInput,
			keysInput,
		),
		widget.NewSeparator(),
		widget.NewLabel("Log"),
		logContainer,
	)

	root := container.NewHSplit(controls, resultTable)
	root.Offset = 0.45
	u.w.SetContent(root)
	return u
}

func showError(win fyne.Window, err error) {
	if err != nil {
		dialog.ShowError(err, win)
	}
}

func parseInputTexts(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitCommaList(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseKSetting(text string) (phrasecluster.KSetting, error) {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" || text == "auto" {
		return phrasecluster.AutoK, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil || n <= 0 {
		return phrasecluster.AutoK, fmt.Errorf("cluster count must be a positive number or \"auto\"")
	}
	return phrasecluster.KSetting(n), nil
}

func parseSeed(text string) (*int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	seed, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("seed must be an integer")
	}
	return &seed, nil
}

func buildTableData(result *phrasecluster.Result) [][]string {
	data := make([][]string, 1, len(result.Rows)+1)
	data[0] = []string{"phrase", "normalized", "cluster", "representative"}
	for _, row := range result.Rows {
		cluster := strconv.Itoa(row.ClusterID)
		if row.ClusterID == phrasecluster.UnclusteredID {
			cluster = "unclustered"
		}
		data = append(data, []string{
			truncateText(row.Phrase, 100),
			row.Normalized,
			cluster,
			row.Representative,
		})
	}
	return data
}

func truncateText(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
