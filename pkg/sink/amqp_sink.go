// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

package sink

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"
)

// AMQPSink publishes cell events onto a durable queue instead of posting
// them straight to a collector. Useful when the front-end-facing socket
// server lives behind a broker rather than being reachable directly.
type AMQPSink struct {
	url, queue string
	logger     *log.Logger
}

func NewAMQPSink(url, queueName string, l *log.Logger) *AMQPSink {
	return &AMQPSink{url: url, queue: queueName, logger: l}
}

func (s *AMQPSink) Emit(event string, payload any, room, namespace string) {
	body, err := json.Marshal(wireEvent{
		Event:     event,
		Payload:   payload,
		Room:      room,
		Namespace: namespace,
	})
	if err != nil {
		s.logger.Println("amqp sink: unable to marshal event", err)
		return
	}

	conn, err := amqp.Dial(s.url)
	if err != nil {
		s.logger.Println("amqp sink: unable to dial broker", err)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		s.logger.Println("amqp sink: unable to open channel", err)
		return
	}
	defer ch.Close()

	queue, err := ch.QueueDeclare(
		s.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		s.logger.Println("amqp sink: unable to declare queue", err)
		return
	}

	err = ch.Publish(
		"",         // exchange
		queue.Name, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		s.logger.Println("amqp sink: unable to publish event", err)
	}
}
