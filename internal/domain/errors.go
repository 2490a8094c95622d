// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrMaxActiveThreadsExceeded = errors.New("max active threads exceeded")
var ErrPlanTemplateNotFound = errors.New("plan template not found")
var ErrInvalidAPIKeyName = errors.New("invalid api key name")

// Dependency graph validation failures.
var ErrDuplicateStepID = errors.New("duplicate step id")
var ErrSelfDependency = errors.New("step depends on itself")
var ErrUnknownDependency = errors.New("dependency references unknown step id")
var ErrDependencyCycle = errors.New("dependency graph contains a cycle")
