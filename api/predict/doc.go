// Package predict exposes the prediction engine, the input schema, the
// dataset overview and the prediction log over HTTP using echo.
package predict
