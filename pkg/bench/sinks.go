package bench

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/report"
)

// OpenSinks opens the record sinks configured in c: a CSV file in the record
// directory, MQTT when a broker is set, and the log at debug level. An unreachable
// broker is logged and skipped.
func OpenSinks(c config.Config, prefix, mac string) (report.Sink, error) {
	sinks := report.Multi{report.Log{Level: logrus.DebugLevel}}

	csv, err := report.NewCSV(c.RecordDir(), report.FileName(prefix, mac, time.Now()))
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, csv)

	if broker := c.MQTTBroker(); broker != "" {
		m, err := report.DialMQTT(broker, "radiocal-"+prefix, c.MQTTTopic())
		if err != nil {
			logrus.WithError(err).Warn("mqtt records disabled")
		} else {
			sinks = append(sinks, m)
		}
	}

	return sinks, nil
}
