package core

import (
	"fmt"
	mathrand "math/rand"
)

// PeerIDFixture returns a randomly generated PeerID.
func PeerIDFixture() PeerID {
	p, err := RandomPeerID()
	if err != nil {
		panic(err)
	}
	return p
}

func fixtureIP() string {
	return fmt.Sprintf("127.0.0.%d", mathrand.Intn(254)+1)
}

func fixturePort() int {
	return mathrand.Intn(50000) + 1024
}

// PeerInfoFixture returns a randomly generated PeerInfo.
func PeerInfoFixture() *PeerInfo {
	return NewPeerInfo(PeerIDFixture(), fixtureIP(), fixturePort(), false)
}

// CompletePeerInfoFixture returns a randomly generated PeerInfo marked complete.
func CompletePeerInfoFixture() *PeerInfo {
	return NewPeerInfo(PeerIDFixture(), fixtureIP(), fixturePort(), true)
}

// PeerContextFixture returns a randomly generated PeerContext.
func PeerContextFixture() PeerContext {
	pctx, err := NewPeerContext(RandomPeerIDFactory, fixtureIP(), fixturePort())
	if err != nil {
		panic(err)
	}
	return pctx
}
