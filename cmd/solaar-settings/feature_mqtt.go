//go:build !no_mqtt

package main

import (
	"log/slog"

	"solaar-settings/internal/mqtt"
	"solaar-settings/internal/store"
)

type mqttStopper struct {
	notifier *mqtt.Notifier
}

func (m *mqttStopper) Stop() {
	if m.notifier != nil {
		m.notifier.Stop()
	}
}

func initMQTT(events *store.EventBus, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	n, err := mqtt.NewNotifier(events, mqtt.Config{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err != nil {
		logger.Error("mqtt notifier", "err", err)
		return &mqttStopper{}
	}
	n.Start()
	return &mqttStopper{notifier: n}
}
