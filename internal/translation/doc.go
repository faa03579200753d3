// Package translation translates recognized text into one of a fixed set
// of target languages. Translation never fails outward: any backend problem
// turns into an Outcome carrying a placeholder text.
package translation
