// Package components defines ECS components for material points.
//
// Points are only held in the ECS world while the cloud is being built and
// perturbed; the energy kernel reads a dense snapshot (see systems.Store).
package components
