// Copyright 2025 The blobwagon Authors
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

/*
Package sdk provides the shared machinery behind every wagon.

BaseWagon implements the whole base.Wagon contract over a narrow Store
interface. A backend only has to provide a Store and a Dialer:

	type Wagon struct {
	    *sdk.BaseWagon
	}

	func New() *Wagon {
	    w := &Wagon{}
	    w.BaseWagon = sdk.NewBaseWagon("mybackend", w.dial)
	    return w
	}

	func (w *Wagon) dial(ctx context.Context, repo *base.Repository,
	    auth *base.AuthenticationInfo, proxy *base.ProxyInfo) (sdk.Store, error) {
	    ...
	}

# Transfers

Get writes to a temporary file and renames it into place. PutDirectory
uploads files on a bounded errgroup pool. GetFileList returns the immediate
children of a directory with sub-directories suffixed by "/".

ResourceExists makes exactly one Store.Exists call and never retries. All
other store calls go through RetryWithBackoff with DefaultRetryCondition and
an optional RateLimiter. Stores mark throttled responses with MarkTransient so
they are retried after the server's Retry-After.

# Metrics

Every BaseWagon records TransferMetrics. A Collector exports any number of
them to Prometheus:

	c := sdk.NewCollector("blobwagon")
	c.Register("releases", w.Metrics())
	prometheus.MustRegister(c)

# Testing

MemoryStore, FailingStore, RecordingSessionListener and
RecordingTransferListener are exported for backend and gateway tests.
*/
package sdk
