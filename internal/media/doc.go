// Package media defines audio container formats and the quality rank used to
// choose remote variants and to detect supersedable local files.
//
// Rank is a total order over (bitrate, format):
//
//  1. When both sides carry a known bitrate, the higher bitrate tier wins.
//  2. Otherwise, or on equal tiers, the container preference decides:
//     mp4 > m4a > aac > mp3.
//  3. Identical format and tier compare equal.
//
// Bitrates are snapped to the standard encoder tiers before comparison so a
// 127 kbit/s estimate and a 128 kbit/s label land on the same rank.
//
// Local files only carry a bitrate estimated from size and duration, which
// drifts with VBR encodes and container overhead. Outranks therefore treats
// bitrates within a third of each other as equal before applying the rank,
// so a re-downloaded file never looks worse than its own source.
package media
