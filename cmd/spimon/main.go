package main

import (
	"flag"
	"log"
	"os"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/pruspi.go/pkg/monitor"
	"github.com/robotalks/pruspi.go/pkg/monitor/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/pruspi/"
)

func init() {
	if val := os.Getenv("PRU_SPI_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	opts, prefix, err := mqtt.ClientOptionsFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q := mqtt.NewQueue(opts, prefix)
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}

	q.Sub(monitor.MetaTopicPattern, func(topic string, payload []byte) {
		log.Printf("%s: %s", topic, string(payload))
	})
	q.Sub(monitor.TransferTopicPattern, func(topic string, payload []byte) {
		var ev monitor.TransferEvent
		if err := proto.Unmarshal(payload, &ev); err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, ev.String())
	})
	q.Sub(monitor.StatusTopicPattern, func(topic string, payload []byte) {
		var ev monitor.StatusEvent
		if err := proto.Unmarshal(payload, &ev); err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, ev.String())
	})
	<-(chan struct{})(nil)
}
