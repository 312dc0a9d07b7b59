package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"rgbobj/internal/driver"
	"rgbobj/internal/ui"
)

type verifyOutcome struct {
	result driver.VerifyResult
	err    error
}

func runVerifyWithUI(ctx context.Context, title string, req *driver.VerifyRequest) (driver.VerifyResult, error) {
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan verifyOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = driver.ChannelSink{Ch: events}
		res, err := driver.Verify(ctx, &reqCopy)
		outcomeCh <- verifyOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, req.Files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
