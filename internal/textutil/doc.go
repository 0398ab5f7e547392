// Package textutil derives on-disk names from catalog titles.
//
// Folder names combine a container id with a sanitized title, and episode file
// bases join the Unicode word runs of a title with the episode id so the id
// stays the stable join key between remote and local views.
package textutil
