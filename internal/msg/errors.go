package msg

import "errors"

var (
	errFlashAndMWI    = errors.New("msg: flag_flash and flag_mwi are mutually exclusive")
	errUDHWithoutFlag = errors.New("msg: udhdata present but flag_udh is false")
	errUDHLMismatch   = errors.New("msg: udhdata[0] does not equal len(udhdata)-1")
	errUnicodeNot8Bit = errors.New("msg: flag_unicode requires flag_8bit")
)
