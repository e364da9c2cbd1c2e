// Package webfm_sdk bootstraps a webfm client from the environment or from
// explicit settings. In mock mode the client is backed by an in-memory
// service that behaves like the device, optionally seeded from a file, so
// programs run unchanged without hardware.
package webfm_sdk
