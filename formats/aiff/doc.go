// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files for the engine, through go-audio/aiff.
package aiff
