// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package recommend

import "errors"

// ErrAlgorithmUnavailable reports that a domain has no valid active
// algorithm version. The orchestrator fails closed with this error and
// an empty batch; it never serves unweighted or stale-weight results.
var ErrAlgorithmUnavailable = errors.New("algorithm unavailable")
