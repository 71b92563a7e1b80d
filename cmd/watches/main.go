// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"watches/internal/bus"
	"watches/internal/config"
	"watches/internal/events"
	"watches/internal/fan"
	"watches/internal/hardware"
	"watches/internal/plant"
	"watches/internal/sensor"
	"watches/pkg/appctx"
	"watches/pkg/eventbus"
	"watches/pkg/logger"
	"watches/pkg/modbus"
	"watches/pkg/rootserv"
	"watches/pkg/service"
	"watches/pkg/sysmon"
)

const (
	defaultConfig = "var/config/watches.yaml"
	exitFailure   = 1
	exitConfig    = 2
)

var (
	app        = kingpin.New("watches", "Attic fan thermostat: sensor, controller and fan agents over pub/sub.")
	configPath = app.Flag("config", "Configuration file (YAML)").Short('c').Default(defaultConfig).String()
	logPath    = app.Flag("log", "Append log output to this file (overrides log_path)").String()
	debug      = app.Flag("debug", "Enable debug logging").Envar("DEBUG").Bool()

	plantCmd  = app.Command("plant", "Run the plant controller")
	sensorCmd = app.Command("sensor", "Run the temperature sensor agent")
	fanCmd    = app.Command("fan", "Run the fan actuator agent")
	allCmd    = app.Command("all", "Run all three over the in-memory bus with simulated hardware")
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	os.Exit(run(cmd))
}

// process collects what one invocation runs and what it must release.
type process struct {
	cfg     *config.Config
	mem     *eventbus.Bus
	status  *eventbus.Bus
	reg     *prometheus.Registry
	modbus  *modbus.Client
	runners []service.Runnable
	closers []func() error
}

func run(cmd string) int {
	logger.EnableDebug(*debug)
	log := logger.New("Main")

	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Error("%v", err)
		return exitConfig
	}
	if path := firstNonEmpty(*logPath, cfg.LogPath); path != "" {
		if err := logger.Init(path); err != nil {
			log.Error("%v", err)
			return exitConfig
		}
	}
	defer logger.Close()

	ctx, cancel := appctx.New()
	defer cancel()

	p := &process{
		cfg:    cfg,
		mem:    eventbus.NewWithDepth(cfg.Bus.InboxSize),
		status: eventbus.New(),
		reg:    prometheus.NewRegistry(),
	}
	p.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	defer p.release(log)

	var buildErr error
	switch cmd {
	case plantCmd.FullCommand():
		buildErr = p.addPlant()
	case sensorCmd.FullCommand():
		buildErr = p.addSensor(ctx)
	case fanCmd.FullCommand():
		buildErr = p.addFan(ctx)
	case allCmd.FullCommand():
		buildErr = errors.Join(p.addFan(ctx), p.addPlant(), p.addSensor(ctx))
	}
	if buildErr != nil {
		log.Error("startup: %v", buildErr)
		return exitFailure
	}

	log.Info("Starting %s over %s", cmd, cfg.Bus.Transport)
	return <-service.Start(ctx, cancel, p.runners)
}

// loadConfig reads the config file. "all" may run without one, and always
// runs on the in-memory bus with simulated hardware.
func loadConfig(cmd string) (*config.Config, error) {
	cfg, err := config.LoadFile(*configPath)
	if err != nil && cmd == allCmd.FullCommand() && *configPath == defaultConfig && errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if cmd == allCmd.FullCommand() {
		cfg.Bus.Transport = "memory"
		cfg.Sensor.Source = "sim"
		cfg.Sensor.Unit = "F"
		cfg.Fan.Driver = "soft"
	}
	return cfg, nil
}

func (p *process) openBus(role string) (*bus.Adapter, error) {
	a, err := bus.Open(p.cfg.Bus, role, p.mem, p.reg)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, a.Close)
	return a, nil
}

func (p *process) modbusClient(ctx context.Context) (hardware.RegisterClient, error) {
	if p.modbus == nil {
		c, err := modbus.NewClient(ctx, p.cfg.Modbus)
		if err != nil {
			return nil, err
		}
		p.modbus = c
		p.closers = append(p.closers, func() error { c.Close(); return nil })
	}
	return p.modbus, nil
}

func (p *process) addPlant() error {
	b, err := p.openBus("plant")
	if err != nil {
		return err
	}
	if err := b.Subscribe(events.TopicTemperature, events.TopicFanState); err != nil {
		return err
	}

	ctrl := plant.New(p.cfg.Plant, b, p.status, p.reg)
	web := plant.NewWeb(ctrl, p.status)
	monitor := sysmon.New("/")
	p.reg.MustRegister(monitor)

	server := rootserv.New(p.cfg.Plant.HTTPAddr)
	server.Attach("/plant", "Plant Controller", web)
	server.Attach("/logger", "Logger", logger.WebService("/logger"))
	server.Attach("/monitor", "System Monitor", monitor)
	server.Handle("/metrics", "Prometheus Metrics", promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}))

	p.runners = append(p.runners, ctrl, web, server)
	return nil
}

func (p *process) addSensor(ctx context.Context) error {
	var regs hardware.RegisterClient
	if p.cfg.Sensor.Source == "modbus" {
		var err error
		if regs, err = p.modbusClient(ctx); err != nil {
			return err
		}
	}
	s, err := hardware.NewSensor(p.cfg.Sensor, regs)
	if err != nil {
		return err
	}
	b, err := p.openBus("sensor")
	if err != nil {
		return err
	}
	p.runners = append(p.runners, sensor.New(p.cfg.Sensor, s, b))
	return nil
}

func (p *process) addFan(ctx context.Context) error {
	var regs hardware.RegisterClient
	if p.cfg.Fan.Driver == "modbus" {
		var err error
		if regs, err = p.modbusClient(ctx); err != nil {
			return err
		}
	}
	relay, err := hardware.NewRelay(p.cfg.Fan, regs)
	if err != nil {
		return err
	}
	p.closers = append(p.closers, func() error { return hardware.Close(relay) })

	b, err := p.openBus("fan")
	if err != nil {
		return err
	}
	if err := b.Subscribe(events.TopicFanCommand); err != nil {
		return err
	}
	p.runners = append(p.runners, fan.New(p.cfg.Fan, relay, b))
	return nil
}

// release closes in reverse order of acquisition.
func (p *process) release(log *logger.Logger) {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			log.Warn("shutdown: %v", err)
		}
	}
	p.status.Close()
	p.mem.Close()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
