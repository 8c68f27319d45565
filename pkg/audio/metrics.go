package audio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tracksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "zester_audio_tracks_total",
	Help: "Total number of liked tracks handled by the audio step, by result",
}, []string{"result"})
