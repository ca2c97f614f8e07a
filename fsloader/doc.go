// Package fsloader serves compartment modules from an afero filesystem.
package fsloader
