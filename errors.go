package main

import "errors"

// Sentinel errors for the render pipeline. Each failure is wrapped with one
// of these so the Front and the journal can tell where a render stopped.
var (
	ErrTargetURL  = errors.New("invalid target url")
	ErrLaunch     = errors.New("failed to launch browser")
	ErrNavigation = errors.New("failed to load page")
	ErrEvaluation = errors.New("page cleanup script failed")
	ErrStream     = errors.New("PDF stream failed")
)
