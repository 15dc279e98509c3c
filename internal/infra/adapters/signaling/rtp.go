package signaling

import (
	"errors"
	"io"
	"log/slog"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/application/metric"
)

// rtpStats считает пакеты и дыры в sequence number одного удаленного трека
type rtpStats struct {
	packets uint64
	lost    uint64
	lastSeq uint16
	started bool
}

func (s *rtpStats) observe(pkt *rtp.Packet) {
	if s.started {
		gap := pkt.SequenceNumber - s.lastSeq
		// gap >= 1<<15 - переупорядоченный или повторный пакет
		if gap > 1 && gap < 1<<15 {
			s.lost += uint64(gap - 1)
		}
	}

	s.lastSeq = pkt.SequenceNumber
	s.started = true
	s.packets++
}

// drain вычитывает RTP удаленного трека, пока трек жив
func drain(track *webrtc.TrackRemote) {
	var stats rtpStats

	kind := track.Kind().String()

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Error("RTP read error", slog.Any(constant.Error, err))
			}

			slog.Debug(
				"remote track ended",
				slog.String(constant.TrackID, track.ID()),
				slog.String(constant.TrackKind, kind),
				slog.Uint64("packets", stats.packets),
				slog.Uint64("lost", stats.lost),
			)

			return
		}

		stats.observe(pkt)
		metric.RecordRTPPacket(kind)
	}
}
