// Package image implements the SMP image management group: reading slot
// state, marking an image for test boot, confirming, erasing the secondary
// slot and uploading a firmware image through a transfer session.
//
// Images are identified by their SHA-256 digest, the same value the
// peripheral reports in the slot list.
package image
