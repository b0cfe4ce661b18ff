// Package preprocess turns FeatureRows into numeric vectors. Numeric columns
// are standardized with statistics of the training rows only, categorical
// columns are one-hot encoded over the vocabulary observed during Fit.
//
// A level that was not observed during Fit is encoded as an all-zero block.
package preprocess
