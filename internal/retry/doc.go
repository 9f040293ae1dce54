// Package retry classifies transfer failures and decides how they are retried.
//
// Classification walks an ordered rule table over the lower-cased failure
// text; the first matching rule names the Category. Policy turns a category
// and attempt count into a Decision: retry after a category-scaled delay, or
// give up with an explanation the user can act on. Nothing here sleeps; the
// download manager owns the actual wait.
package retry
