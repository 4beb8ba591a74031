// Package config loads the YAML configuration of a voice session.
//
//	audio:
//	  channels: 2
//	  sampling_rate: 48000
//	  frame_length_ms: 20
//	voice:
//	  modes: [aead_aes256_gcm_rtpsize, aead_xchacha20_poly1305_rtpsize]
//	  silence_trail: 5
//	  max_buffered: 50
//	log:
//	  level: info
//	  format: text
//
// VOICELINK_LOG_LEVEL and VOICELINK_MODES override the file.
package config
