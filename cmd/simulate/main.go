package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"time"

	"call-transcription-bot/internal/asr"
	"call-transcription-bot/internal/asr/mock"
	"call-transcription-bot/internal/call"
	"call-transcription-bot/internal/session"
)

// Frames mimic 16kHz 16-bit mono call audio delivered in 20ms chunks.
const (
	sampleRate      = 16000
	frameSamples    = 320
	frameIntervalMs = 20
)

// voiceFrame returns a frame loud enough to pass the energy gate.
func voiceFrame() call.Frame {
	pcm := make([]byte, frameSamples*2)
	for i := 0; i < frameSamples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], 6000)
	}
	return call.Frame{PCM: pcm, SampleRate: sampleRate, CapturedAt: time.Now()}
}

func main() {
	meetingId := flag.String("meeting", "sim-meeting-"+time.Now().Format("150405"), "Meeting ID")
	callId := flag.String("call", "call-1", "Call ID")
	duration := flag.Duration("duration", 10*time.Second, "How long to stream synthetic audio")
	latency := flag.Duration("latency", 30*time.Millisecond, "Simulated recognition latency per result")
	flag.Parse()

	cfg := session.DefaultConfig()
	cfg.Backend = asr.BackendMock
	cfg.Gate.FlushInterval = 200 * time.Millisecond

	factoryFor := func(info call.Info) asr.Factory {
		return func() (asr.Transport, error) {
			return mock.New(mock.Config{Latency: *latency}), nil
		}
	}

	mgr := session.NewManager(cfg, factoryFor, nil, nil)

	info := call.Info{MeetingID: *meetingId, CallID: *callId}
	roster := call.StaticRoster{"Alice", "Bob", "Carol"}

	sess, err := mgr.StartSession(context.Background(), info, roster)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	log.Printf("Simulating call: session=%s duration=%s", sess.ID(), *duration)

	ticker := time.NewTicker(frameIntervalMs * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(*duration)
	report := time.NewTicker(time.Second)
	defer report.Stop()

	var frames int
stream:
	for {
		select {
		case <-ticker.C:
			if err := sess.Submit(voiceFrame()); err != nil {
				log.Fatalf("submit failed: %v", err)
			}
			frames++
		case <-report.C:
			log.Printf("transcript so far: %q", sess.Transcript())
		case <-deadline:
			break stream
		}
	}

	mgr.StopAll()

	log.Printf("streamed %d frames (%.1fs of audio)", frames,
		float64(frames*frameIntervalMs)/1000)
	log.Printf("final transcript: %q", sess.Transcript())
}
