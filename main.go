/*
Example application exercising the engine package: a colored triangle with a
pulsing tint, resizable and hot-reload aware.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/davlio/ember/engine"
	"github.com/davlio/ember/engine/config"
	"github.com/davlio/ember/engine/core"
	"github.com/davlio/ember/testbed"
)

func main() {
	configPath := flag.String("config", "ember.toml", "path to the application config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("invalid configuration: %s", err)
		os.Exit(1)
	}

	game := testbed.NewTestGame(cfg)

	e, err := engine.New(game.Game)
	if err != nil {
		core.LogFatal("%s", err)
		os.Exit(1)
	}

	if err := e.Initialize(); err != nil {
		core.LogFatal("engine initialization failed: %s", err)
		os.Exit(1)
	}

	// Capture termination signals and trigger a clean shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, core.EventContext{})
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
		os.Exit(1)
	}
}
