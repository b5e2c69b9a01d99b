// Package camera talks to Reolink cameras: it logs in to the HTTP API, reads
// device and AI detection state, fetches snapshots and notifies callbacks
// when detection flags change.
package camera

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/logger"
)

// DefaultRTSPPort is used when neither the config nor the device names one
const DefaultRTSPPort = 554

// AI detection kinds understood by SupportsAI and IsDetected.
const (
	KindPerson  = "person"
	KindVehicle = "vehicle"
	KindPet     = "pet"
)

// Callback is invoked after the camera's AI state changed.
type Callback func()

// Session is a connection to one camera.
type Session interface {
	Connect(ctx context.Context) error
	SupportsAI(channel int, kind string) bool
	IsDetected(channel int, kind string) bool
	FetchSnapshot(ctx context.Context, channel int) ([]byte, error)
	RegisterDetectionCallback(id string, fn Callback)
	SubscribeEvents(ctx context.Context) error
	UnsubscribeEvents(ctx context.Context) error
	Disconnect(ctx context.Context) error
	StreamParams() StreamParams
}

// DeviceInfo is the identity reported by the camera.
type DeviceInfo struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Firmware string `json:"firmVer"`
	Hardware string `json:"hardVer"`
	Channels int    `json:"channelNum"`
}

// StreamParams holds what is needed to build the RTSP URL.
type StreamParams struct {
	Host     string
	Port     int
	Username string
	Password string
	Channel  int
	Codec    string
}

// RTSPURL returns the main stream URL. Reolink numbers streams from 01, so
// channel 0 maps to Preview_01_main.
func (p StreamParams) RTSPURL() string {
	prefix := "Preview"
	if p.Codec == conf.CodecH265 {
		prefix = "h265Preview"
	}
	port := p.Port
	if port <= 0 {
		port = DefaultRTSPPort
	}

	u := url.URL{
		Scheme: "rtsp",
		User:   url.UserPassword(p.Username, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:   fmt.Sprintf("/%s_%02d_main", prefix, p.Channel+1),
	}
	return u.String()
}

// GetLogger returns the camera module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("camera")
}
