// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampIntervalBounds(t *testing.T) {
	assert.Equal(t, minInterval, clampInterval(5*time.Second))
	assert.Equal(t, maxInterval, clampInterval(2*time.Hour))
	assert.Equal(t, 90*time.Second, clampInterval(90*time.Second))
}

func TestNewAnnouncerDispatchesByScheme(t *testing.T) {
	httpAnn, err := NewAnnouncer("http://tracker.example/announce")
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, httpAnn)

	udpAnn, err := NewAnnouncer("udp://tracker.example:1337/announce")
	require.NoError(t, err)
	assert.IsType(t, &UDPClient{}, udpAnn)

	_, err = NewAnnouncer("ftp://tracker.example/announce")
	assert.Error(t, err)

	_, err = NewAnnouncer("://not a url")
	assert.Error(t, err)
}

func TestEndpointString(t *testing.T) {
	e := Endpoint{IP: "1.2.3.4", Port: 6881}
	assert.Equal(t, "1.2.3.4:6881", e.String())
}
