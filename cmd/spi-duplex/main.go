package main

import (
	"context"
	"flag"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robotalks/pruspi.go/pkg/duplex"
	"github.com/robotalks/pruspi.go/pkg/framework"
	"github.com/robotalks/pruspi.go/pkg/monitor"
	"github.com/robotalks/pruspi.go/pkg/pru"
	"github.com/robotalks/pruspi.go/pkg/spi"
)

func init() {
	pru.SetupFlags()
	spi.SetupFlags()
	monitor.SetupFlags()
	duplex.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	demoConf := duplex.Default()
	if err := demoConf.Validate(); err != nil {
		glog.Exit(err)
	}

	stop := framework.NewStopSignal()
	runner := framework.NewRunner().HandleSignalsWith(stop)
	ctx, cancel := context.WithCancel(runner.Context)
	defer cancel()

	metrics := spi.NewMetrics("pruspi").MustRegister(prometheus.DefaultRegisterer)
	masterOpener, slaveOpener := pru.Default().Openers()
	masterConf, slaveConf := spi.NewConfig(), spi.NewConfig()
	masterConf.Opener, masterConf.StopSignal, masterConf.Metrics = masterOpener, stop, metrics
	slaveConf.Opener, slaveConf.StopSignal, slaveConf.Metrics = slaveOpener, stop, metrics
	master, slave := masterConf.NewMaster(), slaveConf.NewSlave()
	defer master.Close()
	defer slave.Close()

	demo := demoConf.NewDemo(master, slave)

	monConf := monitor.Default()
	pub, err := monConf.NewPublisher()
	if err != nil {
		glog.Exit(err)
	}
	if pub != nil {
		pub.Meta.Description = "PRU SPI duplex demo"
		pub.Meta.Interval = masterConf.Interval.String()
		demo.MasterCallback = pub.Watch(master, nil)
		demo.SlaveCallback = pub.Watch(slave, nil)
		runner.GoWith(ctx, framework.NamedRun("publisher", pub))
	}
	if monConf.HTTPAddr != "" {
		server := &monitor.Server{
			Addr:    monConf.HTTPAddr,
			Handler: monitor.NewHandler(prometheus.DefaultGatherer, master, slave),
		}
		if err := server.Listen(); err != nil {
			glog.Exit(err)
		}
		runner.GoWith(ctx, framework.NamedRun("http", server))
	}

	glog.Info("PRU SPI duplex demo starting")
	err = demo.Run(runner.Context)
	if pub != nil {
		pub.Report(master)
		pub.Report(slave)
	}
	cancel()
	if rerr := runner.Wait(); rerr != nil {
		glog.Error(rerr)
	}
	if err != nil {
		glog.Exitf("demo failed: %v", err)
	}
	glog.Infof("PRU SPI duplex demo completed: %d/%d verified", demo.Stats.Verified, demo.Stats.Iterations)
}
