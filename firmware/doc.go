// Package firmware loads firmware images for upload.
//
// Two input encodings are accepted:
//
//   - raw binary, uploaded byte for byte (typically a signed .bin image)
//   - Intel HEX, flattened to a contiguous binary starting at its lowest
//     address with gaps filled by 0xFF
//
// The encoding is detected from content: a file whose first non-blank
// character is ':' is parsed as Intel HEX.
//
// Every loaded Image carries its SHA-256 digest, which is the identity the
// peripheral uses for the image in slot lists and test/confirm commands.
//
// Example:
//
//	img, err := firmware.Load("app_update.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes, sha256 %x\n", img.Size(), img.Hash)
package firmware
