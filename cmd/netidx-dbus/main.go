// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main runs the netidx-dbus bridge: it proxies every object on
// every owned bus name into the pub/sub tree rooted at --netidx-base.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/estokes/netidx-dbus/busconn"
	"github.com/estokes/netidx-dbus/publish"
	"github.com/estokes/netidx-dbus/supervisor"
	"github.com/sirupsen/logrus"
)

func main() {
	bind := flag.String("bind", "local", "the publication service bind mode")
	timeoutSeconds := flag.Int("timeout", 0, "deadline in seconds for each procedure call made through the publisher (0 = no deadline)")
	netidxBase := flag.String("netidx-base", "/local/dbus", "the pub/sub path this bridge publishes under")
	logLevel := flag.String("log-level", "info", "logrus level: trace, debug, info, warn, error")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithError(err).Fatalf("invalid --log-level %q", *logLevel)
	}
	logrus.SetLevel(level)

	if *bind != "local" {
		logrus.WithField("bind", *bind).Fatal("unsupported --bind mode: only \"local\" is implemented")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := busconn.Dial(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to the bus")
	}
	defer conn.Close()

	pub := publish.NewMemoryPublisher(publish.Options{
		ConsumeTimeout: time.Duration(*timeoutSeconds) * time.Second,
	})

	sup := supervisor.New(*netidxBase, pub, conn)
	logrus.WithFields(logrus.Fields{
		"bind": *bind, "netidx-base": *netidxBase,
	}).Info("starting netidx-dbus bridge")

	if err := sup.Run(ctx); err != nil {
		logrus.WithError(err).Fatal("supervisor exited with an error")
	}
	logrus.Info("shut down cleanly")
}
