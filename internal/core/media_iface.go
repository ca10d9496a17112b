package core

import (
	"context"

	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is one peer-to-peer connection as seen by a session.
type MediaConnection interface {
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) error
	// CreateOffer creates an offer and installs it as the local description.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and installs it as the local description.
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	// ReplaceVideoTrack swaps the outbound video in place, without renegotiation.
	ReplaceVideoTrack(track webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	Close() error
}

type MediaFactory interface {
	NewMediaConnection(peer domain.ConnID) (MediaConnection, error)
}

// LocalStream is a captured set of local tracks.
type LocalStream interface {
	AudioTrack() webrtc.TrackLocal
	VideoTrack() webrtc.TrackLocal
	AudioEnabled() bool
	VideoEnabled() bool
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	// Ended is closed when the source stops on its own.
	Ended() <-chan struct{}
	Stop()
}

type MediaDevices interface {
	GetUserMedia(ctx context.Context) (LocalStream, error)
	GetDisplayMedia(ctx context.Context) (LocalStream, error)
}

// Recorder captures remote tracks to disk while active.
type Recorder interface {
	Attach(track *webrtc.TrackRemote)
	Start() error
	Stop() error
}
