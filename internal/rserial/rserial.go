// r in rserial stands for "robust"
package rserial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// rserial reads framed sensor notifications from a BLE-to-UART bridge and
// pushes the raw payloads onto a shared message queue. Each frame is a
// fixed-size payload followed by the stop sequence; anything else means the
// byte stream slipped and gets resynced by scanning for the next stop byte.
//
// The queue is shared between bridges (one dongle per sensor), so the
// reader never closes it; the consumer exits on context cancel instead.
type rserial struct {
	serial.Port
	MessageQueue chan<- []byte
	tempBuff     []byte
	logger       *zap.Logger
	portName     string
	stopSequence []byte
	frameSize    int
	payloadSize  int
}

type OutOfSyncError struct {
	ByteSequence []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("[rserial] incorrect stop sequence detected: %v", e.ByteSequence)
}

func NewRSerial(portName string, baudrate int, messageQueue chan<- []byte, logger *zap.Logger, payloadSize int, stopSequence []byte) *rserial {
	mode := &serial.Mode{
		BaudRate: baudrate,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		logger.Fatal("Error opening serial port", zap.Error(err), zap.String("portName", portName))
	}

	frameSize := payloadSize + len(stopSequence)

	return &rserial{
		Port:         port,
		MessageQueue: messageQueue,
		tempBuff:     make([]byte, frameSize),
		logger:       logger,
		portName:     portName,
		stopSequence: stopSequence,
		frameSize:    frameSize,
		payloadSize:  payloadSize,
	}
}

func (r *rserial) initialize() {
	r.SetReadTimeout(time.Duration(5 * float64(time.Millisecond)))
	r.ResetInputBuffer()
	r.sync()
}

func (r *rserial) Run(ctx context.Context) {
	r.initialize()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("[rserial] exiting from rserial read loop", zap.String("portName", r.portName))
			return
		default:
			err := r.ReadPacket()
			if err != nil {
				var oosError *OutOfSyncError
				if errors.As(err, &oosError) {
					r.logger.Warn("Error while attempting to read packet from serial", zap.Error(err), zap.String("portName", r.portName), zap.ByteString("payload", oosError.ByteSequence))
					r.sync()
				} else {
					r.logger.Warn("Error while attempting to read packet from serial", zap.Error(err), zap.String("portName", r.portName))
				}
			}
		}
	}
}

func (r *rserial) ReadPacket() error {
	count := 0
	for count < r.frameSize {
		n, err := r.Read(r.tempBuff[count:])
		if err != nil {
			return err
		}
		count += n
	}

	// validate the frame by checking the stop sequence at its tail
	if !bytes.Equal(r.tempBuff[r.payloadSize:], r.stopSequence) {
		byteSequenceCopy := make([]byte, r.frameSize)
		copy(byteSequenceCopy, r.tempBuff)

		return &OutOfSyncError{
			ByteSequence: byteSequenceCopy,
		}
	}

	// the queue consumer keeps the payload, so hand it a copy rather than
	// the reused read buffer
	payload := make([]byte, r.payloadSize)
	copy(payload, r.tempBuff[:r.payloadSize])

	r.MessageQueue <- payload
	return nil
}

func (r *rserial) sync() {
	r.logger.Warn("Resyncing serial port", zap.String("portName", r.portName))
	onebyte := make([]byte, 1)

	for onebyte[0] != r.stopSequence[len(r.stopSequence)-1] {
		_, err := r.Read(onebyte)
		if err != nil {
			r.logger.Warn("Error while resyncing serial port", zap.Error(err), zap.String("portName", r.portName))
		}
	}
}
