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

package cmd

import (
	"go.uber.org/zap"

	"github.com/dmoresh/torrentd/coordinator"
	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/metrics"
)

// Config defines torrentd configuration.
type Config struct {
	ZapLogging    zap.Config            `yaml:"zap"`
	Metrics       metrics.Config        `yaml:"metrics"`
	Coordinator   coordinator.Config    `yaml:"coordinator"`
	PeerIDFactory core.PeerIDFactory    `yaml:"peer_id_factory" validate:"nonzero"`

	// SessionStorePath overrides sessionstore.DefaultPath when non-empty,
	// mainly for tests and multi-instance setups on one host.
	SessionStorePath string `yaml:"session_store_path"`
}
